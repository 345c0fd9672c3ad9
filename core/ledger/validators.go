package ledger

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-audit/core"
)

var (
	// amounts are stored as NUMERIC(14, 2)
	amountPlaces = int32(2)
	maxAmount    = decimal.New(1, 12)

	nonNegativeTag  = "nonneg"
	nonNegativeText = "amount cannot be negative"

	amountPlacesTag  = "amountplaces"
	amountPlacesText = fmt.Sprintf("amount cannot have more than %d decimal places", amountPlaces)

	amountMaxTag  = "amountmax"
	amountMaxText = fmt.Sprintf("amount must be less than %s", maxAmount.String())

	txTypeTag  = "txtype"
	txTypeText = "invalid transaction type for this domain"
)

// InitValidators registers the ledger validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator, classes Classifier) {
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		switch v := sl.Current().Interface().(type) {
		case NewTransaction:
			validateAmount(v.Amount, sl)
			if v.Type != "" && !classes.Valid(v.Domain, v.Type) {
				sl.ReportError(v.Type, "type", "Type", txTypeTag, "")
			}
		case Payment:
			validateAmount(v.Amount, sl)
		}
	}, NewTransaction{}, Payment{})

	core.RegisterCustomTranslation(validate, translator, nonNegativeTag, nonNegativeText)
	core.RegisterCustomTranslation(validate, translator, amountPlacesTag, amountPlacesText)
	core.RegisterCustomTranslation(validate, translator, amountMaxTag, amountMaxText)
	core.RegisterCustomTranslation(validate, translator, txTypeTag, txTypeText)
}

// validateAmount rejects amounts the store would round or overflow.
func validateAmount(amount *decimal.Decimal, sl validator.StructLevel) {
	if amount == nil {
		return
	}
	reportErr := func(tag string) {
		sl.ReportError(amount, "amount", "Amount", tag, "")
	}

	switch {
	case amount.IsNegative():
		reportErr(nonNegativeTag)
	case !amount.Equal(amount.Truncate(amountPlaces)):
		reportErr(amountPlacesTag)
	case amount.GreaterThanOrEqual(maxAmount):
		reportErr(amountMaxTag)
	}
}
