package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoom(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want RoomID
	}{
		{name: "already normalized", in: "somechannel", want: "somechannel"},
		{name: "leading marker", in: "#somechannel", want: "somechannel"},
		{name: "uppercase", in: "SOMECHANNEL", want: "somechannel"},
		{name: "marker and mixed case", in: "#SomeChannel", want: "somechannel"},
		{name: "interior whitespace preserved", in: "#Some Channel", want: "some channel"},
		{name: "only one marker stripped", in: "##foo", want: "#foo"},
		{name: "empty", in: "", want: ""},
		{name: "bare marker", in: "#", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRoom(tt.in))
		})
	}
}

func TestNormalizeRoomIdempotent(t *testing.T) {
	for _, in := range []string{"#Foo", "foo", "FOO", "##Bar", "#Some Channel"} {
		once := NormalizeRoom(in)
		assert.Equal(t, once, NormalizeRoom(string(once)), "normalize(%q) must be a fixed point", in)
	}
}

func TestNormalizeRoomsDedupes(t *testing.T) {
	got := normalizeRooms([]string{"#Foo", "FOO", "bar", "", "#", "foo"})
	assert.Equal(t, []RoomID{"foo", "bar"}, got)
}
