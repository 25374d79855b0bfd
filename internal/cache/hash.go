package cache

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"sort"
	"strings"

	"github.com/jward/topdown/internal/symbols"
)

// SignatureHash computes a deterministic hash from a stub's semantic
// identity: name, kind, visibility, supertypes, parameters, types and
// members. Member order does not affect the hash; parameter order does.
func SignatureHash(s *symbols.Stub) string {
	h := sha256.New()
	writeStub(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func writeStub(h hash.Hash, s *symbols.Stub) {
	fmt.Fprintf(h, "name:%s\n", s.Name)
	fmt.Fprintf(h, "kind:%s\n", s.Kind)
	fmt.Fprintf(h, "visibility:%s\n", s.Visibility)

	// Supertypes sorted for determinism.
	sorted := make([]string, len(s.Supertypes))
	copy(sorted, s.Supertypes)
	sort.Strings(sorted)
	fmt.Fprintf(h, "supertypes:%s\n", strings.Join(sorted, ","))

	for i, p := range s.Params {
		fmt.Fprintf(h, "param:%d:%s:%s\n", i, p.Name, p.Type)
	}
	fmt.Fprintf(h, "return:%s\n", s.ReturnType)
	fmt.Fprintf(h, "type:%s\n", s.Type)

	// Members by their own hashes, sorted.
	members := make([]string, len(s.Members))
	for i, m := range s.Members {
		members[i] = SignatureHash(m)
	}
	sort.Strings(members)
	for _, m := range members {
		fmt.Fprintf(h, "member:%s\n", m)
	}
}

// PartHash hashes a part's package and the signature hashes of its stubs.
// The source file location does not affect the hash.
func PartHash(p *symbols.Part) string {
	h := sha256.New()
	fmt.Fprintf(h, "package:%s\n", p.Package)
	stubs := make([]string, len(p.Stubs))
	for i, s := range p.Stubs {
		stubs[i] = SignatureHash(s)
	}
	sort.Strings(stubs)
	for _, s := range stubs {
		fmt.Fprintf(h, "stub:%s\n", s)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
