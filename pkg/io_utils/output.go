package output

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sniffLen is how much of a file is inspected to tell text from binary.
const sniffLen = 8000

var textExtensions = map[string]bool{
	".log": true, ".txt": true, ".csv": true, ".json": true,
}

func isTextFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return textExtensions[ext]
}

// LooksBinary reports whether data contains a NUL byte in its first bytes.
func LooksBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

// CountLines counts the lines of r. A last line without a trailing newline
// still counts.
func CountLines(r io.Reader) (int, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(sniffLen)
	if LooksBinary(head) {
		return 0, nil
	}

	buf := make([]byte, 32*1024)
	count := 0
	last := byte('\n')
	for {
		n, err := br.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

// CountFileLines counts the lines of a source file. Data files such as logs
// and JSON are not source and count as zero.
func CountFileLines(path string) (int, error) {
	if isTextFile(path) {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return CountLines(f)
}
