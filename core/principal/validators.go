package principal

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/masomo-audit/core"
)

var (
	adminRoleTag  = "adminrole"
	adminRoleText = "invalid role"

	scopeTag  = "grantscope"
	scopeText = "grants do not match the role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

// InitValidators registers the principal validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(adminRoleTag, adminRoleValidation)
	core.RegisterCustomTranslation(validate, translator, adminRoleTag, adminRoleText)

	validate.RegisterStructValidation(principalStructValidation, NewPrincipal{}, ResetPassword{})
	core.RegisterCustomTranslation(validate, translator, scopeTag, scopeText)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

func adminRoleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

// principalStructValidation does struct level validation on NewPrincipal and ResetPassword structs.
func principalStructValidation(sl validator.StructLevel) {
	switch p := sl.Current().Interface().(type) {
	case NewPrincipal:
		validateGrants(p, sl)
		validatePassword(p.Password, p.Name, p.Username, p.Email, sl)
	case ResetPassword:
		validatePassword(p.Password, "", p.Username, "", sl)
	}
}

// validateGrants checks that school admins only get school grants and culture admins culture grants.
// Super admins own every unit, explicit grants are pointless for them.
func validateGrants(np NewPrincipal, sl validator.StructLevel) {
	switch np.Role {
	case RoleSchoolAdmin:
		if len(np.CultureIDs) > 0 {
			sl.ReportError(np.CultureIDs, "culture_ids", "CultureIDs", scopeTag, "")
		}
	case RoleCultureAdmin:
		if len(np.SchoolIDs) > 0 {
			sl.ReportError(np.SchoolIDs, "school_ids", "SchoolIDs", scopeTag, "")
		}
	case RoleSuperAdmin:
		if len(np.SchoolIDs) > 0 {
			sl.ReportError(np.SchoolIDs, "school_ids", "SchoolIDs", scopeTag, "")
		}
		if len(np.CultureIDs) > 0 {
			sl.ReportError(np.CultureIDs, "culture_ids", "CultureIDs", scopeTag, "")
		}
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
func validatePassword(pwd, name, uname, email string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	pwdLen := len(pwd)
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		reportErr(pwdComplexityTag)
		return
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	lpwd := strings.ToLower(pwd)
	if getRatio(lpwd, strings.ToLower(name)) >= pwdMaxSim ||
		getRatio(lpwd, uname) >= pwdMaxSim ||
		getRatio(lpwd, email) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
	}
}
