package patches

import (
	"github.com/dhamidi/dexpatch/fingerprint"
	"github.com/dhamidi/dexpatch/patch"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

// AuthUserPermissions locates the accessor reporting the user's permission
// tier.
var AuthUserPermissions = &fingerprint.Fingerprint{
	Name:        "AuthUser.getPermissions",
	ClassCustom: predicate.ClassNameSuffix("AuthUser;"),
	Custom:      predicate.MethodName("getPermissions"),
}

// UnlockPlus forces the app to report "plus" permissions to the server.
func UnlockPlus() *patch.Patch {
	return &patch.Patch{
		Name:        "Unlock Plus",
		Description: "Forces the app to report 'plus' permissions to the server.",
		Compatible:  []string{"com.mladinska.mkplus", "com.audiorista.android"},
		Execute: func(ctx *patch.Context) error {
			m, err := ctx.ResolveMethod(AuthUserPermissions)
			if err != nil {
				return err
			}
			return patch.ReturnConstant(m, program.ConstString(0, "plus"), ctx.Options.Truncate)
		},
	}
}
