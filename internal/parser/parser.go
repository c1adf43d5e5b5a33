package parser

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Field names produced by the parser. They match the interchange column names.
const (
	FieldID         = "id"
	FieldCategory   = "category"
	FieldPrompt     = "prompt"
	FieldAnswer     = "answer"
	FieldTags       = "tags"
	FieldDifficulty = "difficulty"
	FieldSource     = "source"
)

// prefixes maps a line prefix (matched case-insensitively) to its field.
var prefixes = []struct {
	prefix string
	field  string
}{
	{"ID:", FieldID},
	{"Category:", FieldCategory},
	{"Q:", FieldPrompt},
	{"A:", FieldAnswer},
	{"Tags:", FieldTags},
	{"Difficulty:", FieldDifficulty},
	{"Source:", FieldSource},
}

// Block is one entry found in a notes file. Fields holds the raw text of every
// prefixed line seen; validation happens later.
type Block struct {
	Line   int // line of the first field
	Fields map[string]string
}

type state int

const (
	seeking state = iota
	readingPrompt
	readingAnswer
)

// ParseFile reads a file from the given path and extracts all blocks.
func ParseFile(path string) ([]Block, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all blocks. Blocks are separated
// by a "---" line, by an ID: line once the current block has fields, or by a
// Q: line once the current block has a prompt. Q: and A: continue over the
// following lines until the next recognised prefix. Other lines are ignored.
func Parse(r io.Reader) ([]Block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []Block
	current := Block{Fields: map[string]string{}}
	var currentBlock []string
	currentState := seeking
	lineNo := 0

	flushText := func() {
		if len(currentBlock) > 0 {
			content := strings.TrimSpace(strings.Join(currentBlock, "\n"))
			switch currentState {
			case readingPrompt:
				current.Fields[FieldPrompt] = content
			case readingAnswer:
				current.Fields[FieldAnswer] = content
			}
			currentBlock = nil
		}
		currentState = seeking
	}

	finishBlock := func() {
		flushText()
		if len(current.Fields) > 0 {
			blocks = append(blocks, current)
		}
		current = Block{Fields: map[string]string{}}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "---" {
			finishBlock()
			continue
		}

		field, value, ok := matchPrefix(line)
		if !ok {
			if currentState != seeking {
				currentBlock = append(currentBlock, line)
			}
			continue
		}

		flushText()
		switch {
		case field == FieldID && len(current.Fields) > 0:
			finishBlock()
		case field == FieldPrompt && current.Fields[FieldPrompt] != "":
			finishBlock()
		}
		if len(current.Fields) == 0 {
			current.Line = lineNo
		}

		switch field {
		case FieldPrompt:
			currentState = readingPrompt
			currentBlock = append(currentBlock, value)
			current.Fields[FieldPrompt] = value
		case FieldAnswer:
			currentState = readingAnswer
			currentBlock = append(currentBlock, value)
			current.Fields[FieldAnswer] = value
		default:
			current.Fields[field] = strings.TrimSpace(value)
		}
	}

	finishBlock() // Finish the very last block in the file

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return blocks, nil
}

func matchPrefix(line string) (field, value string, ok bool) {
	for _, p := range prefixes {
		if len(line) >= len(p.prefix) && strings.EqualFold(line[:len(p.prefix)], p.prefix) {
			value = line[len(p.prefix):]
			value = strings.TrimPrefix(value, " ")
			return p.field, value, true
		}
	}
	return "", "", false
}
