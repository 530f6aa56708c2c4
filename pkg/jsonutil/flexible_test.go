package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleIntValue(t *testing.T) {
	tests := []struct {
		name    string
		input   json.RawMessage
		want    int
		wantErr bool
	}{
		{name: "number", input: json.RawMessage(`7`), want: 7},
		{name: "quoted number", input: json.RawMessage(`"7"`), want: 7},
		{name: "quoted number with spaces", input: json.RawMessage(`" 3 "`), want: 3},
		{name: "integral float", input: json.RawMessage(`8.0`), want: 8},
		{name: "negative", input: json.RawMessage(`-1`), want: -1},
		{name: "fractional float", input: json.RawMessage(`7.5`), wantErr: true},
		{name: "non-numeric string", input: json.RawMessage(`"high"`), wantErr: true},
		{name: "null", input: json.RawMessage(`null`), wantErr: true},
		{name: "missing", input: nil, wantErr: true},
		{name: "object", input: json.RawMessage(`{"score":7}`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlexibleIntValue(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("FlexibleIntValue(%s) = %d, want error", string(tt.input), got)
				}
				return
			}
			if err != nil {
				t.Errorf("FlexibleIntValue(%s) returned error: %v", string(tt.input), err)
			}
			if got != tt.want {
				t.Errorf("FlexibleIntValue(%s) = %d, want %d", string(tt.input), got, tt.want)
			}
		})
	}
}
