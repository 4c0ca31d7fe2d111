package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/lukasjarosch/go-docx"
)

const (
	// ContentType Word 文档 MIME
	ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	// Extension 报告文件扩展名
	Extension = ".docx"
)

// Renderer 把拍平后的上下文填入模板，返回文档字节
type Renderer interface {
	Render(templatePath string, data map[string]string) ([]byte, error)
}

// DocxRenderer 基于 go-docx 的占位符替换，占位符写法为 {key}
// schema 能产生但本单没有的占位符（如多余的表格行）替换为空串
type DocxRenderer struct {
	schema Schema
}

func NewDocxRenderer() *DocxRenderer { return &DocxRenderer{schema: SchemaV1} }

func (r DocxRenderer) Render(templatePath string, data map[string]string) ([]byte, error) {
	placeholders, err := TemplatePlaceholders(templatePath)
	if err != nil {
		return nil, err
	}

	doc, err := docx.Open(templatePath)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer doc.Close()

	// 只替换模板中实际存在的占位符；多余的行数据忽略，缺少的行留空
	replace := docx.PlaceholderMap{}
	for _, p := range placeholders {
		if v, ok := data[p]; ok {
			replace[p] = v
		} else if r.schema.Produces(p) {
			replace[p] = ""
		}
	}
	if err := doc.ReplaceAll(replace); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	xmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
	placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
)

// TemplatePlaceholders 列出模板正文、页眉、页脚中的占位符（去重、排序）
// 先去掉 XML 标签再匹配，被 Word 拆成多个 run 的占位符也能找到
func TemplatePlaceholders(templatePath string) ([]string, error) {
	zr, err := zip.OpenReader(templatePath)
	if err != nil {
		return nil, fmt.Errorf("open template %s: %w", templatePath, err)
	}
	defer zr.Close()

	seen := map[string]bool{}
	foundBody := false
	for _, f := range zr.File {
		if !isTextPart(f.Name) {
			continue
		}
		if f.Name == "word/document.xml" {
			foundBody = true
		}
		text, err := readPart(f)
		if err != nil {
			return nil, err
		}
		plain := xmlTagPattern.ReplaceAllString(text, "")
		for _, m := range placeholderPattern.FindAllStringSubmatch(plain, -1) {
			seen[m[1]] = true
		}
	}
	if !foundBody {
		return nil, fmt.Errorf("template %s has no word/document.xml", templatePath)
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func isTextPart(name string) bool {
	if name == "word/document.xml" {
		return true
	}
	if !strings.HasSuffix(name, ".xml") {
		return false
	}
	return strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer")
}

func readPart(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	return string(b), nil
}
