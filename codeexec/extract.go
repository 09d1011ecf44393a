// Package codeexec runs the code blocks that agents write into the chat.
package codeexec

import (
	"regexp"
	"strings"
)

// Language of an executable block.
type Language string

const (
	LangPython  Language = "python"
	LangShell   Language = "sh"
	LangUnknown Language = ""
)

// Block is one fenced code block found in a message.
type Block struct {
	Lang Language
	Tag  string
	Code string
}

var fence = regexp.MustCompile("(?s)```[ \\t]*([\\w+\\-.]*)[^\\n]*\\n(.*?)```")

// Extract returns the fenced code blocks in content, in order.
func Extract(content string) []Block {
	matches := fence.FindAllStringSubmatch(content, -1)
	blocks := make([]Block, 0, len(matches))
	for _, m := range matches {
		code := strings.TrimRight(m[2], "\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		tag := strings.ToLower(m[1])
		blocks = append(blocks, Block{Lang: languageOf(tag, code), Tag: tag, Code: code})
	}
	return blocks
}

func languageOf(tag, code string) Language {
	switch tag {
	case "python", "py", "python3":
		return LangPython
	case "sh", "bash", "shell", "console", "zsh":
		return LangShell
	case "":
		// untagged fences are usually python in this chat
		if strings.HasPrefix(strings.TrimSpace(code), "#!/bin/") {
			return LangShell
		}
		return LangPython
	default:
		return LangUnknown
	}
}
