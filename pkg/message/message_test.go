package message

import (
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	raw := Encode(Message{ID: 42, Channel: "events.create", Body: []byte("hello\nworld")})
	if string(raw) != "events.create@42\nhello\nworld" {
		t.Fatalf("unexpected framing: %q", raw)
	}
	m, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID != 42 || m.Channel != "events.create" || string(m.Body) != "hello\nworld" {
		t.Fatalf("decoded %+v", m)
	}
}

func TestDecodeChannelWithAt(t *testing.T) {
	m, err := Decode([]byte("user@host@7\nx"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Channel != "user@host" || m.ID != 7 {
		t.Fatalf("decoded %+v", m)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{"", "no-delimiter", "@1\nbody", "chan@\nbody", "chan@abc\nbody", "chan@0\nbody", "chan\nbody"}
	for _, c := range cases {
		if _, err := Decode([]byte(c)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: want ErrMalformed, got %v", c, err)
		}
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	m, err := Decode([]byte("foo.1@3\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(m.Body) != 0 {
		t.Fatalf("expected empty body, got %q", m.Body)
	}
}
