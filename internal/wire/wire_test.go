package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func TestParseRequestSet(t *testing.T) {
	req, err := ParseRequest("SET key hello world\n")
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Verb != VerbSet || req.Key != "key" || req.Value != "hello world" {
		t.Fatalf("got %+v", req)
	}
}

func TestParseRequestGetAndRemove(t *testing.T) {
	for _, verb := range []Verb{VerbGet, VerbRemove} {
		req, err := ParseRequest(string(verb) + " key\n")
		if err != nil {
			t.Fatalf("ParseRequest(%s): %v", verb, err)
		}
		if req.Verb != verb || req.Key != "key" {
			t.Fatalf("got %+v", req)
		}
	}
}

func TestParseRequestRejectsUnknownVerb(t *testing.T) {
	if _, err := ParseRequest("FOO key\n"); err == nil {
		t.Fatal("expected error for unknown verb")
	}
}

func TestParseRequestRejectsWrongArity(t *testing.T) {
	if _, err := ParseRequest("GET\n"); err == nil {
		t.Fatal("expected error for GET with no key")
	}
	if _, err := ParseRequest("SET key\n"); err == nil {
		t.Fatal("expected error for SET with no value")
	}
}

func TestWriteReadResponseRoundTrip(t *testing.T) {
	cases := []Response{
		OKResponse(),
		ValueResponse("hello"),
		NotFoundResponse(),
		ErrResponse("boom"),
	}

	for _, want := range cases {
		var buf bytes.Buffer
		w := bufio.NewWriter(&buf)
		if err := WriteResponse(w, want); err != nil {
			t.Fatalf("WriteResponse: %v", err)
		}

		got, err := ReadResponse(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		if got.IsOK() != want.IsOK() || got.Found() != want.Found() || got.IsNotFound() != want.IsNotFound() ||
			got.Value() != want.Value() || got.Message() != want.Message() {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}

func TestOKResponseIsNotMisreadAsNotFound(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := WriteResponse(w, OKResponse()); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	if buf.String() != "OK\n" {
		t.Fatalf("wire line = %q, want %q", buf.String(), "OK\n")
	}

	got, err := ReadResponse(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !got.IsOK() || got.IsNotFound() {
		t.Fatalf("got %+v, expected a bare OK", got)
	}
}
