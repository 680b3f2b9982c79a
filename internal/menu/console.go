package menu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console 行式输入输出。实现 config.Prompter，凭证缺失时也用它询问。
type Console struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // 输入为终端时的文件描述符，否则 -1
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	return c
}

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Print(s string) {
	io.WriteString(c.out, s)
}

// ReadLine 打印 label 后读一行并去掉首尾空白。
// 输入结束且没有读到任何内容时返回 io.EOF。
func (c *Console) ReadLine(label string) (string, error) {
	c.Print(label)
	line, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Prompt 空输入返回默认值
func (c *Console) Prompt(label, def string) (string, error) {
	if isSecret(label) {
		return c.readSecret(label)
	}
	text := label + ": "
	if def != "" {
		text = fmt.Sprintf("%s [%s]: ", label, def)
	}
	v, err := c.ReadLine(text)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// readSecret 终端下关闭回显
func (c *Console) readSecret(label string) (string, error) {
	if c.fd < 0 {
		return c.ReadLine(label + ": ")
	}
	c.Print(label + ": ")
	b, err := term.ReadPassword(c.fd)
	c.Print("\n")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func isSecret(label string) bool {
	return strings.Contains(strings.ToLower(label), "secret")
}
