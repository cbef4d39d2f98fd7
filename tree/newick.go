package tree

import (
	"bufio"
	"errors"
	"io"
	"math"
	"strconv"
	"unicode"
	"unicode/utf8"
)

type mode int

const (
	normal mode = iota
	length
)

// IsSpecial returns true for Newick punctuation.
func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc splitting Newick into tokens.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// errNoTree signals that the input has no more trees.
var errNoTree = errors.New("no tree found")

func parseOne(scanner *bufio.Scanner) (*Tree, error) {
	nodeId := 0
	node := NewNode(nil, nodeId)
	tree := &Tree{Node: node}
	nodeId++

	m := normal
	seen := false
	for scanner.Scan() {
		seen = true
		text := scanner.Text()
		switch text {
		case "(":
			node = NewNode(node, nodeId)
			nodeId++
		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			node = NewNode(node.Parent, nodeId)
			nodeId++
		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case ":":
			m = length
		case ";":
			if node.Parent != nil {
				return nil, errors.New("brackets mismatch")
			}
			return tree, nil
		default:
			switch {
			case m == length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				m = normal
			case !node.IsTerminal():
				// internal node label is a support value
				s, err := strconv.ParseFloat(text, 64)
				if err != nil {
					node.Name = text
				} else {
					node.Support = int(math.Floor(s + 0.5))
				}
			default:
				node.Name = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !seen {
		return nil, errNoTree
	}
	return nil, errors.New("tree is not terminated by ';'")
}

// ParseNewick parses a single tree. Leaves are numbered in the order
// of appearance.
func ParseNewick(rd io.Reader) (*Tree, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(NewickSplit)
	t, err := parseOne(scanner)
	if err == errNoTree {
		return nil, errors.New("empty tree")
	}
	if err != nil {
		return nil, err
	}
	t.numberLeaves()
	return t, nil
}

// ParseNewickAll parses all the trees from the reader.
func ParseNewickAll(rd io.Reader) (trees []*Tree, err error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(NewickSplit)
	for {
		t, err := parseOne(scanner)
		if err == errNoTree {
			break
		}
		if err != nil {
			return nil, err
		}
		t.numberLeaves()
		trees = append(trees, t)
	}
	if len(trees) == 0 {
		return nil, errors.New("no trees found")
	}
	return trees, nil
}
