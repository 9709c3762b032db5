package util

import "testing"

func TestNewBase62Length(t *testing.T) {
	for _, length := range []int{10, 12, 14, 15, 16} {
		id := NewBase62(length)
		if len(id) != length {
			t.Fatalf("NewBase62(%d) returned %q (len %d)", length, id, len(id))
		}
		if !IsBase62(id, length) {
			t.Fatalf("NewBase62(%d) returned non-base62 id %q", length, id)
		}
	}
}

func TestIsBase62(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		length int
		want   bool
	}{
		{name: "valid", value: "a1B2c3D4e5", length: 10, want: true},
		{name: "wrong length", value: "a1B2c3D4e5", length: 12, want: false},
		{name: "underscore", value: "a1B2c3D4e_", length: 10, want: false},
		{name: "dash", value: "a1B2c3D4-5", length: 10, want: false},
		{name: "empty", value: "", length: 10, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBase62(tc.value, tc.length); got != tc.want {
				t.Fatalf("IsBase62(%q, %d) = %v, want %v", tc.value, tc.length, got, tc.want)
			}
		})
	}
}
