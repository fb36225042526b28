package bencode_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/cenkalti/demagnetize/internal/bencode"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		blob []byte
		data any
	}{
		{[]byte("4:spam"), []byte("spam")},
		{[]byte("i3e"), int64(3)},
		{[]byte("l4:spam4:eggse"), []any{[]byte("spam"), []byte("eggs")}},
		{[]byte("d3:cow3:moo4:spam4:eggse"), map[string]any{"cow": []byte("moo"), "spam": []byte("eggs")}},
		{[]byte("i0e"), int64(0)},
		{[]byte("i-1e"), int64(-1)},
		{[]byte("i-10e"), int64(-10)},
		{[]byte("0:"), []byte("")},
		{[]byte("le"), []any{}},
		{[]byte("de"), map[string]any{}},
		{
			[]byte("d8:msg_typei0e5:piecei0ee"),
			map[string]any{"msg_type": int64(0), "piece": int64(0)},
		},
	}
	for _, c := range cases {
		v, err := bencode.Unmarshal(c.blob)
		if err != nil {
			t.Errorf("Unmarshal(%q) error: %v", c.blob, err)
			continue
		}
		if !reflect.DeepEqual(v, c.data) {
			t.Errorf("Unmarshal(%q) = %#v, want %#v", c.blob, v, c.data)
		}
		enc, err := bencode.Marshal(c.data)
		if err != nil {
			t.Errorf("Marshal(%#v) error: %v", c.data, err)
			continue
		}
		if !bytes.Equal(enc, c.blob) {
			t.Errorf("Marshal(%#v) = %q, want %q", c.data, enc, c.blob)
		}
	}
}

func TestMarshalDictSortsKeys(t *testing.T) {
	got, err := bencode.Marshal(map[string]any{"spam": []byte("eggs"), "cow": []byte("moo")})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("d3:cow3:moo4:spam4:eggse")
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal = %q, want %q", got, want)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	bad := [][]byte{
		[]byte("i-0e"),
		[]byte("i00e"),
		[]byte("i04e"),
		[]byte("04:spam"),
		[]byte("-4:spam"),
		[]byte("-0:"),
		[]byte("24:short"),
		[]byte("4:longextra"),
		[]byte("l"),
		[]byte("q"),
		[]byte("d"),
		[]byte("di32e6:stringe"),
		[]byte("d6:bananai1e5:applei2e"),
		[]byte("i3.14e"),
		[]byte("i12-e"),
		[]byte("i 12e"),
		[]byte("i12 e"),
		[]byte("i12:"),
		[]byte("5eapple"),
	}
	for _, blob := range bad {
		if _, err := bencode.Unmarshal(blob); err == nil {
			t.Errorf("Unmarshal(%q) expected error, got none", blob)
		}
	}
}

func TestUnmarshalRejectsDeepNesting(t *testing.T) {
	blob := bytes.Repeat([]byte("l"), 1234)
	blob = append(blob, bytes.Repeat([]byte("e"), 1234)...)
	if _, err := bencode.Unmarshal(blob); err == nil {
		t.Error("expected recursion-limit error, got none")
	}
}

func TestUnmarshalPartial(t *testing.T) {
	blob := []byte("d8:msg_typei1e5:piecei0e10:total_sizei3425eeabcdefg")
	data, trailing, err := bencode.UnmarshalPartial(blob)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"msg_type": int64(1), "piece": int64(0), "total_size": int64(3425)}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("data = %#v, want %#v", data, want)
	}
	if string(trailing) != "abcdefg" {
		t.Errorf("trailing = %q, want %q", trailing, "abcdefg")
	}
}

func TestUnmarshalStrictRejectsTrailingBytes(t *testing.T) {
	if _, err := bencode.Unmarshal([]byte("i1eextra")); err == nil {
		t.Error("expected trailing-bytes error, got none")
	}
}
