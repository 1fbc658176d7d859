package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorCodeUnexpected prefixes every legacy classification message.
const ErrorCodeUnexpected = "18013"

// Legacy classification kinds.
const (
	KindPasswordInvalid        = "PASSWORD_INVALID"
	KindNullCredentials        = "NULL_CREDENTIALS"
	KindNullUsername           = "NULL_USERNAME"
	KindExistingUser           = "EXISTING_USER"
	KindInvalidClaimURL        = "INVALID_CLAIM_URL"
	KindReadOnlyStore          = "READ_ONLY_STORE"
	KindReadOnlyPrimaryStore   = "READ_ONLY_PRIMARY_STORE"
	KindInvalidRole            = "INVALID_ROLE"
	KindNoReadWritePermissions = "NO_READ_WRITE_PERMISSIONS"
	KindExistingRole           = "EXISTING_ROLE"
	KindSharedUserRoles        = "SHARED_USER_ROLES"
	KindRemoveAdminUser        = "REMOVE_ADMIN_USER"
	KindLoggedInUser           = "LOGGED_IN_USER"
	KindAdminUser              = "ADMIN_USER"
	KindAnonymousUser          = "ANONYMOUS_USER"
	KindInvalidOperation       = "INVALID_OPERATION"
)

const adminRoleMessage = " Cannot remove Admin user from Admin role."

type classificationRule struct {
	kind     string
	match    string
	category goerrors.Category
	message  func(username string) string
}

func fixed(msg string) func(string) string {
	return func(string) string { return msg }
}

// classificationRules is evaluated top to bottom; the first match wins.
var classificationRules = []classificationRule{
	{KindPasswordInvalid, "Credential must be a non null string", goerrors.CategoryAuth,
		fixed(" Old credential does not match with the existing credentials.")},
	{KindNullCredentials, "NullCredetials", goerrors.CategoryBadInput,
		func(u string) string { return " Credential is not valid. Credential must be a non null for the user : " + u }},
	{KindNullUsername, "User name must be a non null string", goerrors.CategoryBadInput,
		fixed(" UserName is not valid. User Name must be a non null")},
	{KindExistingUser, "Username already exists in the system", goerrors.CategoryConflict,
		func(u string) string { return " Username '" + u + "' already exists in the system. Please pick another username." }},
	{KindInvalidClaimURL, "InvalidClaimUrl", goerrors.CategoryBadInput,
		fixed(" Invalid claim uri has been provided.")},
	{KindReadOnlyStore, "User store is read only", goerrors.CategoryOperation,
		fixed(" Read-only UserStoreManager. Roles cannot be added or modified.")},
	{KindReadOnlyPrimaryStore, "ReadOnlyPrimaryUserStoreManager", goerrors.CategoryOperation,
		fixed(" Cannot add role to Read Only user store unless it is primary.")},
	{KindInvalidRole, "InvalidRole", goerrors.CategoryBadInput,
		fixed(" Role name not valid. Role name must be a non null string.")},
	{KindNoReadWritePermissions, "NoReadWritePermission", goerrors.CategoryOperation,
		fixed(" Role cannot be added. User store is read only or cannot write groups.")},
	{KindExistingRole, "RoleExisting", goerrors.CategoryConflict,
		fixed(" Role alreary exists in the system. Please pick another role name.")},
	{KindSharedUserRoles, "SharedUserRoles", goerrors.CategoryOperation,
		fixed(" User store doesn't support shared user roles functionality.")},
	{KindRemoveAdminUser, "RemoveAdminUser", goerrors.CategoryAuthz, fixed(adminRoleMessage)},
	{KindLoggedInUser, "LoggedInUser", goerrors.CategoryAuthz, fixed(adminRoleMessage)},
	{KindAdminUser, "AdminUser", goerrors.CategoryAuthz, fixed(adminRoleMessage)},
	{KindAnonymousUser, "AnonymousUser", goerrors.CategoryAuthz,
		fixed(" Cannot delete anonymous user.")},
	{KindInvalidOperation, "InvalidOperation", goerrors.CategoryOperation,
		fixed(" Invalid operation. User store is read only.")},
}

// ErrorClassification is the presentation friendly view of an upstream error.
type ErrorClassification struct {
	// Kind is one of the Kind constants or TextCodeUnclassifiedUpstreamError.
	Kind     string
	Message  string
	Category goerrors.Category
	Cause    error
}

// Classified reports whether a catalog entry matched.
func (c ErrorClassification) Classified() bool {
	return c.Kind != TextCodeUnclassifiedUpstreamError
}

// Err converts the classification into a rich error wrapping the cause.
func (c ErrorClassification) Err() *goerrors.Error {
	err := goerrors.New(c.Message, c.Category).WithTextCode(c.Kind)
	if !c.Classified() {
		err = err.WithCode(goerrors.CodeInternal)
	}
	if c.Cause != nil {
		err.Source = c.Cause
	}
	return err
}

// ClassifyUpstreamError maps an opaque user store error onto the legacy
// message catalog by substring match. It returns a fresh value on every call.
func ClassifyUpstreamError(err error, username string) ErrorClassification {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	for _, rule := range classificationRules {
		if strings.Contains(msg, rule.match) {
			return ErrorClassification{
				Kind:     rule.kind,
				Message:  ErrorCodeUnexpected + rule.message(username),
				Category: rule.category,
				Cause:    err,
			}
		}
	}

	return ErrorClassification{
		Kind:     TextCodeUnclassifiedUpstreamError,
		Message:  ErrorCodeUnexpected + " Error occurred while adding user : " + username,
		Category: goerrors.CategoryInternal,
		Cause:    err,
	}
}
