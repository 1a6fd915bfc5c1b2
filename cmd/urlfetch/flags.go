package main

import (
	"strings"
)

// headerFlag collects repeated -H values.
type headerFlag []string

func (h *headerFlag) String() string {
	return strings.Join(*h, ", ")
}

func (h *headerFlag) Set(v string) error {
	*h = append(*h, v)
	return nil
}
