package compiler

import (
	"errors"
	"strings"
	"testing"

	"imageforge/internal/catalog"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "plain split",
			raw:  "-resize 800x600 -strip",
			want: []string{"-resize", "800x600", "-strip"},
		},
		{
			name: "double quotes group",
			raw:  `-annotate +10+10 "hello world"`,
			want: []string{"-annotate", "+10+10", "hello world"},
		},
		{
			name: "single quotes group",
			raw:  "-fill 'rgba dark'",
			want: []string{"-fill", "rgba dark"},
		},
		{
			name:    "unbalanced quote",
			raw:     `-annotate "oops`,
			wantErr: true,
		},
		{
			name: "empty",
			raw:  "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tokenize(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("tokenize: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCompileRaw_AllowedFlags(t *testing.T) {
	c, root := newTestCompiler(t)
	input := testInput(t, root, "a.jpg")

	cmd, err := c.CompileRaw("-resize 800x600 -strip -quality 90", input, Options{})
	if err != nil {
		t.Fatalf("CompileRaw: %v", err)
	}

	if cmd.Argv[0] != cmd.InputPath {
		t.Errorf("argv[0] = %q, want input path", cmd.Argv[0])
	}
	if cmd.Argv[len(cmd.Argv)-1] != cmd.OutputPath {
		t.Errorf("argv tail = %q, want output path", cmd.Argv[len(cmd.Argv)-1])
	}
	if !strings.Contains(strings.Join(cmd.Argv, " "), "-resize 800x600") {
		t.Errorf("resize tokens missing: %v", cmd.Argv)
	}
}

func TestCompileRaw_Rejections(t *testing.T) {
	c, root := newTestCompiler(t)
	input := testInput(t, root, "a.jpg")

	tests := []struct {
		name string
		raw  string
	}{
		{"shell chaining", "-resize 800x600; rm -rf /"},
		{"pipe", "-resize 800x600 | cat"},
		{"backticks", "-resize `id`"},
		{"subshell dollar", "-resize $HOME"},
		{"unknown flag", "-write somewhere"},
		{"flag not in any renderer", "-density 300"},
		{"path argument", "-resize ../../etc/passwd"},
		{"absolute path", "-annotate /etc/shadow"},
		{"home expansion", "-annotate ~root"},
		{"file read reference", "-annotate @secrets.txt"},
		{"pseudo protocol", "-resize msl:payload"},
		{"url protocol", "-resize https:evil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CompileRaw(tt.raw, input, Options{})
			var disallowed *catalog.DisallowedOperationError
			if !errors.As(err, &disallowed) {
				t.Fatalf("expected DisallowedOperationError, got %v", err)
			}
		})
	}
}

func TestCompileRaw_PlaceholdersBoundOnce(t *testing.T) {
	c, root := newTestCompiler(t)
	input := testInput(t, root, "a.jpg")

	cmd, err := c.CompileRaw("{input} -resize 50% {output}", input, Options{})
	if err != nil {
		t.Fatalf("CompileRaw: %v", err)
	}

	inputCount, outputCount := 0, 0
	for _, tok := range cmd.Argv {
		switch tok {
		case cmd.InputPath:
			inputCount++
		case cmd.OutputPath:
			outputCount++
		case InputPlaceholder, OutputPlaceholder:
			t.Errorf("unbound placeholder %q in argv", tok)
		}
	}
	if inputCount != 1 || outputCount != 1 {
		t.Errorf("paths bound %d/%d times, want exactly once each", inputCount, outputCount)
	}
}

func TestPreviewRaw_KeepsPlaceholders(t *testing.T) {
	c, _ := newTestCompiler(t)

	preview, err := c.PreviewRaw("-resize 50%", Options{})
	if err != nil {
		t.Fatalf("PreviewRaw: %v", err)
	}
	if !strings.HasPrefix(preview, InputPlaceholder) {
		t.Errorf("preview does not start with input placeholder: %s", preview)
	}
	if !strings.HasSuffix(preview, OutputPlaceholder) {
		t.Errorf("preview does not end with output placeholder: %s", preview)
	}
}
