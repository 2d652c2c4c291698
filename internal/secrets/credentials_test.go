package secrets

import (
	"testing"
	"time"
)

func TestLookup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		blob   string
		want   string
		wantOK bool
	}{
		{
			name:   "valid with future expiry",
			blob:   `{"token":"tok-1","expires_at":"2026-03-01T13:00:00Z"}`,
			want:   "tok-1",
			wantOK: true,
		},
		{
			name:   "valid without expiry",
			blob:   `{"token":"tok-2"}`,
			want:   "tok-2",
			wantOK: true,
		},
		{
			name:   "expired",
			blob:   `{"token":"tok-3","expires_at":"2026-03-01T11:00:00Z"}`,
			wantOK: false,
		},
		{
			name:   "empty token",
			blob:   `{"token":""}`,
			wantOK: false,
		},
		{
			name:   "malformed blob",
			blob:   `{not json`,
			wantOK: false,
		},
		{
			name:   "empty blob",
			blob:   ``,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup([]byte(tt.blob), now)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if got != tt.want {
				t.Errorf("expected token %q, got %q", tt.want, got)
			}
		})
	}
}
