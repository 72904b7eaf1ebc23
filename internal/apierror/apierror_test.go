package apierror

import "testing"

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeConflict:   409,
		CodeNotFound:   404,
		CodeBadRequest: 400,
		CodeInternal:   500,
		Code("bogus"):  500,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestConstructorsSetCodeAndMessage(t *testing.T) {
	err := NotFoundf("playlist %d not found", 7)
	if err.Code != CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %s", err.Code)
	}
	if err.Message != "playlist 7 not found" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.Error() != "not_found: playlist 7 not found" {
		t.Fatalf("unexpected Error() string: %s", err.Error())
	}
}
