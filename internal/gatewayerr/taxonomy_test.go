package gatewayerr

import "testing"

func TestError_Error(t *testing.T) {
	t.Parallel()

	e := &Error{Kind: InvalidAPIKey}
	if e.Error() != "InvalidApiKey" {
		t.Errorf("Error() = %q, want %q", e.Error(), "InvalidApiKey")
	}

	e2 := New(TokenExpired, "exp 100 < now 200")
	if e2.Error() != "TokenExpired: exp 100 < now 200" {
		t.Errorf("Error() = %q", e2.Error())
	}
}

func TestMostSpecific_Empty(t *testing.T) {
	t.Parallel()

	got := MostSpecific(nil)
	if got.Kind != MissingCredentials {
		t.Errorf("Kind = %v, want MissingCredentials", got.Kind)
	}
}

func TestMostSpecific_AllMissingCredentials(t *testing.T) {
	t.Parallel()

	errs := []*Error{New(MissingCredentials, ""), New(MissingCredentials, "")}
	got := MostSpecific(errs)
	if got.Kind != MissingCredentials {
		t.Errorf("Kind = %v, want MissingCredentials", got.Kind)
	}
}

func TestMostSpecific_TokenExpiredOutranksInvalidJWT(t *testing.T) {
	t.Parallel()

	errs := []*Error{New(InvalidJWT, ""), New(TokenExpired, "")}
	got := MostSpecific(errs)
	if got.Kind != TokenExpired {
		t.Errorf("Kind = %v, want TokenExpired", got.Kind)
	}
}

func TestMostSpecific_InvalidJWTOutranksInvalidAPIKey(t *testing.T) {
	t.Parallel()

	errs := []*Error{New(InvalidAPIKey, ""), New(InvalidJWT, "")}
	got := MostSpecific(errs)
	if got.Kind != InvalidJWT {
		t.Errorf("Kind = %v, want InvalidJWT", got.Kind)
	}
}

func TestMostSpecific_IgnoresMissingCredentialsAmongOthers(t *testing.T) {
	t.Parallel()

	errs := []*Error{New(MissingCredentials, ""), New(InvalidAPIKey, "")}
	got := MostSpecific(errs)
	if got.Kind != InvalidAPIKey {
		t.Errorf("Kind = %v, want InvalidApiKey", got.Kind)
	}
}

func TestMostSpecific_UnknownKindTreatedAsLowRank(t *testing.T) {
	t.Parallel()

	errs := []*Error{New(Kind("SomethingNew"), ""), New(TokenExpired, "")}
	got := MostSpecific(errs)
	if got.Kind != TokenExpired {
		t.Errorf("Kind = %v, want TokenExpired", got.Kind)
	}
}
