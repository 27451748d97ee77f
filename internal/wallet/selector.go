package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Selector is the provider-choice interaction of an interactive connect
type Selector interface {
	Select(ctx context.Context, providers []Provider) (Provider, error)
}

// SelectorFunc adapts a function to Selector
type SelectorFunc func(ctx context.Context, providers []Provider) (Provider, error)

func (f SelectorFunc) Select(ctx context.Context, providers []Provider) (Provider, error) {
	return f(ctx, providers)
}

// FirstInstalled picks the most preferred provider without asking
var FirstInstalled = SelectorFunc(func(_ context.Context, providers []Provider) (Provider, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviderFound
	}
	return providers[0], nil
})

// KindSelector picks the provider of a given kind, cancelling when it is absent
func KindSelector(kind Kind) Selector {
	return SelectorFunc(func(_ context.Context, providers []Provider) (Provider, error) {
		for _, p := range providers {
			if p.Kind() == kind {
				return p, nil
			}
		}
		return nil, ErrUserCancelled
	})
}

// PromptSelector lists providers on Out and reads a 1-based choice from In.
// An empty line picks the first provider; "q", EOF or an invalid choice cancels.
type PromptSelector struct {
	In  io.Reader
	Out io.Writer
}

func (s PromptSelector) Select(ctx context.Context, providers []Provider) (Provider, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviderFound
	}

	fmt.Fprintln(s.Out, "🔑 Select a wallet:")
	for i, p := range providers {
		fmt.Fprintf(s.Out, "   %d) %s (%s)\n", i+1, p.Name(), p.Kind().DisplayName())
	}
	fmt.Fprint(s.Out, "   choice [1]: ")

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(s.In).ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	var a answer
	select {
	case <-ctx.Done():
		return nil, ErrUserCancelled
	case a = <-answers:
	}

	choice := strings.TrimSpace(a.line)
	if a.err != nil && choice == "" {
		return nil, ErrUserCancelled
	}
	switch strings.ToLower(choice) {
	case "":
		return providers[0], nil
	case "q", "quit", "cancel":
		return nil, ErrUserCancelled
	}

	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(providers) {
		return nil, ErrUserCancelled
	}
	return providers[n-1], nil
}
