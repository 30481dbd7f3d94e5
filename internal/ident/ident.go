package ident

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/speps/go-hashids/v2"
)

const referencePrefix = "WR-"

// Generator hands out record ids and the public references shown to users
// for withdrawal requests.
type Generator struct {
	node   *snowflake.Node
	hashes *hashids.HashID
}

// New creates a Generator for the given snowflake node. salt keys the
// reference encoding, so references from different deployments differ.
func New(node int64, salt string) (*Generator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 12
	hd.Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("hashids: %w", err)
	}

	return &Generator{node: n, hashes: h}, nil
}

func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}

// Reference encodes id as "WR-" followed by its hashid.
func (g *Generator) Reference(id int64) (string, error) {
	e, err := g.hashes.EncodeInt64([]int64{id})
	if err != nil {
		return "", fmt.Errorf("encode reference: %w", err)
	}
	return referencePrefix + e, nil
}

// ParseReference reverses Reference.
func (g *Generator) ParseReference(ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(strings.ToUpper(ref), referencePrefix) {
		return 0, fmt.Errorf("reference %q: missing %s prefix", ref, referencePrefix)
	}
	ids, err := g.hashes.DecodeInt64WithError(strings.ToUpper(ref[len(referencePrefix):]))
	if err != nil {
		return 0, fmt.Errorf("decode reference %q: %w", ref, err)
	}
	if len(ids) != 1 {
		return 0, errors.New("reference must encode exactly one id")
	}
	return ids[0], nil
}
