package compiler

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"imageforge/internal/catalog"
	"imageforge/internal/guard"
)

// Raw terminal mode: free text is tokenized (quote-aware, never shell
// evaluated) and every flag token is checked against the catalog-derived
// allowlist. The result is the same CompiledCommand shape as structured
// compilation, so there is a single execution code path.

// shellMeta characters reject the whole compile immediately. They have no
// legitimate place in engine arguments.
const shellMeta = ";&|`$<>(){}*?"

// protocolPrefix matches engine pseudo-protocols (msl:, url:, http:, ...)
// that can read or write arbitrary resources.
var protocolPrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

// valuePattern is the conservative shape of a non-flag argument: geometry,
// percentages, color names, numeric lists. Anything else is rejected.
var valuePattern = regexp.MustCompile(`^[-+]?[A-Za-z0-9][A-Za-z0-9x+,.%!^#-]*$`)

// CompileRaw builds a CompiledCommand from free-text engine arguments.
// Tokens equal to the {input}/{output} placeholders are bound to the
// guard-issued paths; if absent, input is prepended and output appended.
func (c *Compiler) CompileRaw(raw string, inputPath string, opts Options) (*CompiledCommand, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}

	tokens, err := c.vetRaw(raw)
	if err != nil {
		return nil, err
	}

	input, err := c.gd.Resolve(inputPath, guard.PurposeInput)
	if err != nil {
		return nil, err
	}
	output, err := c.gd.Resolve(c.gd.OutputPath(opts.OutputFormat), guard.PurposeOutput)
	if err != nil {
		return nil, err
	}

	limits := c.gd.LimitsFor(len(tokens), 0)
	argv := bindRaw(tokens, input, output, limits)

	return &CompiledCommand{
		Argv:        argv,
		PreviewText: strings.Join(argv, " "),
		InputPath:   input,
		OutputPath:  output,
		Limits:      limits,
	}, nil
}

// PreviewRaw vets raw text and returns the display string with
// placeholders intact.
func (c *Compiler) PreviewRaw(raw string, opts Options) (string, error) {
	opts, err := opts.normalized()
	if err != nil {
		return "", err
	}
	tokens, err := c.vetRaw(raw)
	if err != nil {
		return "", err
	}
	limits := c.gd.LimitsFor(len(tokens), 0)
	argv := bindRaw(tokens, InputPlaceholder, OutputPlaceholder, limits)
	return strings.Join(argv, " "), nil
}

func (c *Compiler) vetRaw(raw string) ([]string, error) {
	tokens, err := tokenize(raw)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, &catalog.ValidationError{Reason: "empty command"}
	}

	for _, tok := range tokens {
		if tok == InputPlaceholder || tok == OutputPlaceholder {
			continue
		}
		if strings.ContainsAny(tok, shellMeta) {
			return nil, &catalog.DisallowedOperationError{Token: tok}
		}
		if looksLikePath(tok) {
			return nil, &catalog.DisallowedOperationError{Token: tok}
		}
		if catalog.IsFlagToken(tok) {
			if !c.cat.FlagAllowed(tok) {
				return nil, &catalog.DisallowedOperationError{Token: tok}
			}
			continue
		}
		if !valuePattern.MatchString(tok) {
			return nil, &catalog.DisallowedOperationError{Token: tok}
		}
	}
	return tokens, nil
}

// looksLikePath flags any token that could reference a file or resource.
// Paths come only from the guard, never from raw text.
func looksLikePath(tok string) bool {
	if strings.Contains(tok, "/") || strings.Contains(tok, "\\") {
		return true
	}
	if strings.Contains(tok, "..") {
		return true
	}
	if strings.HasPrefix(tok, "~") || strings.HasPrefix(tok, "@") {
		return true
	}
	return protocolPrefix.MatchString(tok)
}

func bindRaw(tokens []string, input, output string, limits guard.Limits) []string {
	argv := []string{input,
		"-limit", "memory", fmt.Sprintf("%dMiB", limits.MaxMemoryBytes>>20),
		"-limit", "time", fmt.Sprintf("%d", int(limits.MaxDuration.Seconds())),
	}

	// Input is always bound first and output always last, whether or not
	// the text carried placeholders; a repeated placeholder would otherwise
	// duplicate a path in the vector.
	for _, tok := range tokens {
		if tok == InputPlaceholder || tok == OutputPlaceholder {
			continue
		}
		argv = append(argv, tok)
	}

	return append(argv, output)
}

// tokenize splits raw text on whitespace with single and double quote
// grouping. It is a plain lexer: no expansion, no escapes, no evaluation.
func tokenize(raw string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	var quote rune
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for _, r := range raw {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, &catalog.ValidationError{Reason: "unbalanced quote"}
	}
	flush()
	return tokens, nil
}
