package user

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/pkg/errors"

	"github.com/masomo/feeledger/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "one of username or email is required"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdPolicyTexts = map[string]string{
		pwdMinLenTag:    pwdMinLenText,
		pwdNoSpaceTag:   pwdNoSpaceText,
		pwdNotAllNumTag: pwdNotAllNumText,
		pwdAttrSimTag:   pwdAttrSimText,
	}
)

// InitValidators registers the user validations & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)

	validate.RegisterStructValidation(userStructValidation, NewUser{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, usernameOrEmailText)
	for tag, text := range pwdPolicyTexts {
		core.RegisterCustomTranslation(validate, translator, tag, text)
	}
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	known := make([]string, len(AllRoles))
	copy(known, AllRoles)
	sort.Strings(known)
	for _, role := range roles {
		idx := sort.SearchStrings(known, role)
		if idx >= len(known) || known[idx] != role {
			return false
		}
	}
	return true
}

// userStructValidation does struct level validation on NewUser.
func userStructValidation(sl validator.StructLevel) {
	nu, ok := sl.Current().Interface().(NewUser)
	if !ok {
		return
	}
	// one of Username or Email is required
	if len(nu.Username) == 0 && len(nu.Email) == 0 {
		sl.ReportError(nu.Username, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(nu.Email, "email", "Email", usernameOrEmailTag, "")
	}
	if tag := checkPassword(nu.Password, nu.Name, nu.Username, nu.Email); tag != "" {
		sl.ReportError(nu.Password, "password", "Password", tag, "")
	}
}

// validatePassword applies the password policy outside of struct validation (eg. from the CLI).
func validatePassword(pwd, name, uname, email string) error {
	if tag := checkPassword(pwd, name, uname, email); tag != "" {
		text := pwdPolicyTexts[tag]
		return core.NewValidationError(errors.New(text), core.FieldError{Field: "password", Error: text})
	}
	return nil
}

// checkPassword returns the tag of the first policy rule `pwd` breaks, or "":
// - minLen: 8
// - no whitespace
// - not all numeric
// - no user attrs similarity
func checkPassword(pwd, name, uname, email string) string {
	if len(pwd) < pwdMinLen {
		return pwdMinLenTag
	}

	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len(pwd) {
		return pwdNotAllNumTag
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	lpwd := strings.ToLower(pwd)
	for _, attr := range []string{name, uname, email} {
		if getRatio(lpwd, strings.ToLower(attr)) >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}
	return ""
}
