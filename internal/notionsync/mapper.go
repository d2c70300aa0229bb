package notionsync

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ledger/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// Property names of the counterparties database.
const (
	PropName          = "Name"
	PropID            = "Counterparty ID"
	PropTxCount       = "Transactions"
	PropTotalDebit    = "Total Debit"
	PropTotalCredit   = "Total Credit"
	PropFirstSeen     = "First Seen"
	PropLastSeen      = "Last Seen"
	PropAliases       = "Aliases"
	maxRichTextLength = 2000
)

// CounterpartyToNotionProperties maps a counterparty and its aliases to page
// properties. Amounts are written in major units.
func CounterpartyToNotionProperties(cp *domain.Counterparty, aliases []domain.CounterpartyAlias) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Title: richText(cp.CanonicalName),
		},
		PropID: notionapi.RichTextProperty{
			RichText: richText(cp.ID),
		},
		PropTxCount: notionapi.NumberProperty{
			Number: float64(cp.TxCount),
		},
		PropTotalDebit: notionapi.NumberProperty{
			Number: majorUnits(cp.TotalDebitMinor),
		},
		PropTotalCredit: notionapi.NumberProperty{
			Number: majorUnits(cp.TotalCreditMinor),
		},
	}

	if cp.FirstSeen != nil {
		props[PropFirstSeen] = dateProperty(*cp.FirstSeen)
	}
	if cp.LastSeen != nil {
		props[PropLastSeen] = dateProperty(*cp.LastSeen)
	}

	if len(aliases) > 0 {
		keys := make([]string, 0, len(aliases))
		for _, a := range aliases {
			keys = append(keys, a.Alias)
		}
		props[PropAliases] = notionapi.RichTextProperty{
			RichText: richText(strings.Join(keys, ", ")),
		}
	}
	return props
}

func richText(content string) []notionapi.RichText {
	if len(content) > maxRichTextLength {
		content = content[:maxRichTextLength]
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

func dateProperty(d civil.Date) notionapi.DateProperty {
	start := notionapi.Date(d.In(time.UTC))
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{Start: &start},
	}
}

func majorUnits(minor int64) float64 {
	return decimal.New(minor, -2).InexactFloat64()
}

// counterpartyIDOf reads the Counterparty ID property of a page, or "".
func counterpartyIDOf(page notionapi.Page) string {
	prop, ok := page.Properties[PropID]
	if !ok {
		return ""
	}
	if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
		return rt.RichText[0].PlainText
	}
	return ""
}
