package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// BlockMatcher decides, given the number of completed blocks, whether to act.
type BlockMatcher func(blocks uint64) bool

type BlockMatcherFlag struct {
	repr    string
	matcher BlockMatcher
}

func MustBlockMatcherFlag(pattern string) *BlockMatcherFlag {
	out := new(BlockMatcherFlag)
	if err := out.Set(pattern); err != nil {
		panic(err)
	}
	return out
}

func (m *BlockMatcherFlag) Set(value string) error {
	m.repr = value
	if value == "" || value == "never" {
		m.matcher = func(uint64) bool {
			return false
		}
	} else if value == "always" {
		m.matcher = func(uint64) bool {
			return true
		}
	} else if strings.HasPrefix(value, "=") {
		at, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse block number: %w", err)
		}
		m.matcher = func(blocks uint64) bool {
			return blocks == at
		}
	} else if strings.HasPrefix(value, "%") {
		every, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse block interval: %w", err)
		}
		if every == 0 {
			return fmt.Errorf("block interval must be positive")
		}
		m.matcher = func(blocks uint64) bool {
			return blocks%every == 0
		}
	} else {
		return fmt.Errorf("unrecognized block matcher: %q", value)
	}
	return nil
}

func (m *BlockMatcherFlag) String() string {
	return m.repr
}

func (m *BlockMatcherFlag) Matcher() BlockMatcher {
	if m.matcher == nil { // Set is not called for the default value
		return func(uint64) bool {
			return false
		}
	}
	return m.matcher
}

func (m *BlockMatcherFlag) Clone() any {
	var out BlockMatcherFlag
	if err := out.Set(m.repr); err != nil {
		panic(fmt.Errorf("invalid repr: %w", err))
	}
	return &out
}
