package apierr

import "testing"

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{AuthRequired, 401},
		{Timeout, 408},
		{BadInput, 400},
		{AuthDenied, 400},
		{NotFound, 400},
		{Conflict, 400},
		{Upstream, 400},
		{IO, 400},
		{Cancelled, 400},
	}
	for _, c := range cases {
		if got := c.kind.HTTPStatus(); got != c.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := New(BadInput, "root cause")
	wrapped := Wrap(Upstream, "outer", cause)

	if wrapped.Unwrap() != cause {
		t.Fatalf("expected Unwrap to return the wrapped cause")
	}
	if wrapped.Error() == "" {
		t.Fatalf("expected a non-empty error string")
	}
}

func TestAsExtractsStructuredError(t *testing.T) {
	err := New(NotFound, "missing")
	e, ok := As(err)
	if !ok || e.Kind != NotFound {
		t.Fatalf("expected to extract a NotFound *Error")
	}
}
