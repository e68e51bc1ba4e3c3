package fingerprint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/predicate"
	"github.com/dhamidi/dexpatch/program"
)

func class(t *testing.T, name string, flags program.AccessFlags, methods ...program.MethodDef) *program.ClassUnit {
	t.Helper()
	c, err := program.NewClass(program.ClassDef{Name: name, AccessFlags: flags, Methods: methods})
	require.NoError(t, err)
	return c
}

func returning(name, ret string, literals ...string) program.MethodDef {
	var insns []program.Instruction
	for _, s := range literals {
		insns = append(insns, program.ConstString(0, s))
	}
	insns = append(insns, program.Return(program.OpReturnObject, 0))
	return program.MethodDef{
		Name:        name,
		AccessFlags: program.AccPublic,
		Return:      ret,
		Code:        &program.CodeDef{Registers: 1, Instructions: insns},
	}
}

func sample(t *testing.T) *program.Program {
	t.Helper()
	p, err := program.New(
		class(t, "Lcom/app/auth/AuthUser;", program.AccPublic,
			returning("getPermissions", "Ljava/lang/String;", "free"),
			returning("getName", "Ljava/lang/String;", "anonymous"),
		),
		class(t, "Lcom/app/billing/Plan;", program.AccPublic|program.AccFinal,
			returning("describe", "Ljava/lang/String;", "Active", "Inactive"),
		),
		class(t, "Lcom/app/billing/Legacy;", program.AccPublic,
			returning("describe", "Ljava/lang/String;", "Active", "Inactive"),
		),
		class(t, "Lcom/lib/Util;", program.AccPublic,
			returning("describe", "Ljava/lang/Object;", "Active"),
		),
	)
	require.NoError(t, err)
	return p
}

func TestResolveMethod(t *testing.T) {
	p := sample(t)

	t.Run("unique", func(t *testing.T) {
		mm, err := ResolveMethod(p, &Fingerprint{
			Name:        "permissions",
			ClassCustom: predicate.ClassNameSuffix("AuthUser;"),
			Custom:      predicate.MethodName("getPermissions"),
		})
		require.NoError(t, err)
		require.Equal(t, "Lcom/app/auth/AuthUser;", mm.Class.Name())
		require.Equal(t, "getPermissions", mm.Method.Name())
	})

	t.Run("missing literal", func(t *testing.T) {
		_, err := ResolveMethod(p, &Fingerprint{
			Name:    "status strings",
			Strings: []string{"Active", "Inactive", "Expired"},
		})
		require.True(t, errz.Is(err, errz.NotFound), "%v", err)
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := ResolveMethod(p, &Fingerprint{Strings: []string{"Active", "Inactive"}})
		require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)
		require.Contains(t, err.Error(), "Lcom/app/billing/Plan;->describe")
		require.Contains(t, err.Error(), "Lcom/app/billing/Legacy;->describe")
	})

	t.Run("flags disambiguate", func(t *testing.T) {
		mm, err := ResolveMethod(p, &Fingerprint{
			Strings:     []string{"Active", "Inactive"},
			ClassCustom: predicate.ClassFlags(program.AccFinal, 0),
		})
		require.NoError(t, err)
		require.Equal(t, "Lcom/app/billing/Plan;", mm.Class.Name())
	})

	t.Run("returns prefix", func(t *testing.T) {
		mm, err := ResolveMethod(p, &Fingerprint{Strings: []string{"Active"}, Returns: "Ljava/lang/Object;"})
		require.NoError(t, err)
		require.Equal(t, "Lcom/lib/Util;", mm.Class.Name())
	})

	t.Run("opcodes", func(t *testing.T) {
		_, err := ResolveMethod(p, &Fingerprint{
			Opcodes: []program.Opcode{program.OpConstString, program.OpConstString, program.OpReturnObject},
		})
		require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)
	})

	t.Run("scope class first", func(t *testing.T) {
		mm, err := ResolveMethod(p, &Fingerprint{
			Strings: []string{"Active", "Inactive"},
			Scope:   Scope{Class: "Lcom/app/billing/Legacy;"},
		})
		require.NoError(t, err)
		require.Equal(t, "Lcom/app/billing/Legacy;", mm.Class.Name())
	})

	t.Run("scope falls back to package", func(t *testing.T) {
		mm, err := ResolveMethod(p, &Fingerprint{
			Strings: []string{"Active"},
			Scope:   Scope{Class: "Lcom/app/auth/AuthUser;", Package: "com.lib"},
		})
		require.NoError(t, err)
		require.Equal(t, "Lcom/lib/Util;", mm.Class.Name())
	})

	t.Run("deterministic", func(t *testing.T) {
		fp := &Fingerprint{Strings: []string{"anonymous"}}
		first, err := ResolveMethod(p, fp)
		require.NoError(t, err)
		for range 10 {
			again, err := ResolveMethod(p, fp)
			require.NoError(t, err)
			require.Same(t, first.Method, again.Method)
		}
	})
}

func TestResolveClass(t *testing.T) {
	p := sample(t)

	c, err := ResolveClass(p, &Fingerprint{
		Strings:        []string{"Active"},
		AccessFlags:    program.AccFinal,
		ForbiddenFlags: program.AccInterface,
	})
	require.NoError(t, err)
	require.Equal(t, "Lcom/app/billing/Plan;", c.Name())

	_, err = ResolveClass(p, &Fingerprint{Strings: []string{"Active"}})
	require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)

	_, err = ResolveClass(p, &Fingerprint{Custom: predicate.MethodName("describe")})
	require.True(t, errz.Is(err, errz.Invalid), "%v", err)
}

func TestMember(t *testing.T) {
	p := sample(t)
	fp := &Fingerprint{ClassCustom: predicate.ClassNameSuffix("AuthUser;")}

	mm, err := Member(p, fp, predicate.MethodStrings("anonymous"))
	require.NoError(t, err)
	require.Equal(t, "getName", mm.Method.Name())

	_, err = Member(p, fp, predicate.Returns("Ljava/lang/String;"))
	require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)

	_, err = Member(p, fp, predicate.MethodName("logout"))
	require.True(t, errz.Is(err, errz.NotFound), "%v", err)
}

func TestSibling(t *testing.T) {
	p := sample(t)
	fp := &Fingerprint{Strings: []string{"anonymous"}}

	mm, err := Sibling(p, fp, predicate.MethodName("getPermissions"))
	require.NoError(t, err)
	require.Equal(t, "Lcom/app/auth/AuthUser;", mm.Class.Name())
	require.Equal(t, "getPermissions", mm.Method.Name())

	_, err = Sibling(p, fp, predicate.Returns("Ljava/lang/String;"))
	require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)

	_, err = Sibling(p, &Fingerprint{Strings: []string{"Expired"}}, predicate.MethodName("getPermissions"))
	require.True(t, errz.Is(err, errz.NotFound), "%v", err)
}

func TestResolveStopsAtSecondMatch(t *testing.T) {
	var classes []*program.ClassUnit
	for _, name := range []string{"La/A;", "La/B;", "La/C;", "La/D;", "La/E;"} {
		classes = append(classes, class(t, name, program.AccPublic, returning("run", "Ljava/lang/String;")))
	}
	p, err := program.New(classes...)
	require.NoError(t, err)

	calls := 0
	counting := func(program.MethodView, program.ClassView) bool {
		calls++
		return true
	}

	_, err = ResolveMethod(p, &Fingerprint{Name: "run", Custom: counting})
	require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)
	require.Equal(t, 2, calls, "scan continued past the second match")

	calls = 0
	_, err = ResolveClass(p, &Fingerprint{Name: "any class", ClassCustom: func(program.ClassView) bool {
		calls++
		return true
	}})
	require.True(t, errz.Is(err, errz.Ambiguous), "%v", err)
	require.Equal(t, 2, calls, "scan continued past the second match")
}

func TestResolveDoesNotMutate(t *testing.T) {
	p := sample(t)
	before := p.Classes()

	_, _ = ResolveMethod(p, &Fingerprint{Strings: []string{"Active"}})
	require.Equal(t, before, p.Classes())
}

func TestResolveAll(t *testing.T) {
	p := sample(t)
	fps := []*Fingerprint{
		{Name: "permissions", Custom: predicate.MethodName("getPermissions")},
		{Name: "expired", Strings: []string{"Expired"}},
		{Name: "describe", Custom: predicate.MethodName("describe")},
	}

	results, err := ResolveAll(context.Background(), p, fps, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Equal(t, "getPermissions", results[0].Match.Method.Name())
	require.True(t, errz.Is(results[1].Err, errz.NotFound))
	require.True(t, errz.Is(results[2].Err, errz.Ambiguous))
	for i, r := range results {
		require.Same(t, fps[i], r.Fingerprint)
	}
}

func TestResolveAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResolveAll(ctx, sample(t), []*Fingerprint{{Strings: []string{"free"}}}, 0)
	require.ErrorIs(t, err, context.Canceled)
}
