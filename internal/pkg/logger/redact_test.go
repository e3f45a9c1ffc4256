package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range cases {
		if got := RedactEmail(in); got != want {
			t.Errorf("RedactEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactIdentity(t *testing.T) {
	if got := RedactIdentity("+15551234567"); got != "***67" {
		t.Errorf("phone identity: got %q", got)
	}
	if got := RedactIdentity("jane@corp.io"); got != "ja***@corp.io" {
		t.Errorf("email identity: got %q", got)
	}
}
