package common

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestHashRequestBodyDeterministic(t *testing.T) {
	body := json.RawMessage(`{"symbol":"AAPL","window":30}`)

	first, err := HashRequestBody(body)
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}
	second, err := HashRequestBody(body)
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}

	if first != second {
		t.Errorf("same body produced different hashes: %s vs %s", first, second)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("hash %q is not a valid UUID: %v", first, err)
	}
}

func TestHashRequestBodyKeyOrderIndependent(t *testing.T) {
	a := json.RawMessage(`{"symbol":"AAPL","window":30,"nested":{"x":1,"y":2}}`)
	b := json.RawMessage(`{"window":30,"nested":{"y":2,"x":1},"symbol":"AAPL"}`)

	hashA, err := HashRequestBody(a)
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}
	hashB, err := HashRequestBody(b)
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}

	if hashA != hashB {
		t.Errorf("reordered keys changed the hash: %s vs %s", hashA, hashB)
	}
}

func TestHashRequestBodyWhitespaceIndependent(t *testing.T) {
	compact := json.RawMessage(`{"a":1}`)
	spaced := json.RawMessage("{ \"a\" : 1 }")

	hashCompact, err := HashRequestBody(compact)
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}
	hashSpaced, err := HashRequestBody(spaced)
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}

	if hashCompact != hashSpaced {
		t.Errorf("whitespace changed the hash: %s vs %s", hashCompact, hashSpaced)
	}
}

func TestHashRequestBodyDifferentBodiesDiffer(t *testing.T) {
	hashA, err := HashRequestBody(json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}
	hashB, err := HashRequestBody(json.RawMessage(`{"a":2}`))
	if err != nil {
		t.Fatalf("HashRequestBody failed: %v", err)
	}

	if hashA == hashB {
		t.Errorf("different bodies collided on %s", hashA)
	}
}

func TestHashRequestBodyEmptyAndNil(t *testing.T) {
	nilHash, err := HashRequestBody(nil)
	if err != nil {
		t.Fatalf("HashRequestBody(nil) failed: %v", err)
	}
	emptyHash, err := HashRequestBody(json.RawMessage{})
	if err != nil {
		t.Fatalf("HashRequestBody(empty) failed: %v", err)
	}
	nullHash, err := HashRequestBody(json.RawMessage(`null`))
	if err != nil {
		t.Fatalf("HashRequestBody(null) failed: %v", err)
	}

	if nilHash != emptyHash || emptyHash != nullHash {
		t.Errorf("nil, empty and null bodies should hash identically: %s, %s, %s", nilHash, emptyHash, nullHash)
	}
}

func TestHashRequestBodyInvalidJSON(t *testing.T) {
	if _, err := HashRequestBody(json.RawMessage(`{"broken"`)); err == nil {
		t.Fatal("expected error for malformed JSON body")
	}
}
