// Package ignore 决定本地数据目录中哪些条目不对外提供
// 规则语法与 .gitignore 相同；以 "/" 结尾的规则只匹配目录。
package ignore

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"climdash/pkg/storage"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile 是数据根目录下的用户自定义忽略文件
const IgnoreFile = ".climdashignore"

// defaultRules 总是生效，用户文件中的 "!" 规则可以重新放行
var defaultRules = []string{
	// 工具自身与版本控制
	".climdash/",
	".git/",

	// 凭据
	"config.yaml",
	".env",

	// 未完成的下载
	"*.tmp",
	"*.part",

	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断数据目录中的条目是否应从目录枚举和变更监听中排除
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 加载 rootPath 下的 .climdashignore (可选) 并与默认规则合并
func NewMatcher(rootPath string) (*Matcher, error) {
	ignoreFilePath := filepath.Join(rootPath, IgnoreFile)

	// 默认规则放在前面，用户规则后编译，"!" 才能覆盖默认值
	if _, err := os.Stat(ignoreFilePath); err != nil {
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(defaultRules...)}, nil
	}
	raw, err := os.ReadFile(ignoreFilePath)
	if err != nil {
		return nil, err
	}
	lines := append(append([]string(nil), defaultRules...), strings.Split(string(raw), "\n")...)
	return &Matcher{ignorer: gitignore.CompileIgnoreLines(lines...)}, nil
}

// Match 检查一个相对于数据根目录的路径
// isDir 为 true 时按目录匹配 (带尾部斜杠)，这样 "drafts/" 这类只针对目录的规则才会生效。
// 返回命中的规则原文，便于日志说明条目为什么被隐藏。
func (m *Matcher) Match(rel string, isDir bool) (bool, string) {
	if m == nil || m.ignorer == nil {
		return false, ""
	}
	p := normalize(rel)
	if p == "" {
		return false, ""
	}
	if isDir {
		p += "/"
	}
	ok, how := m.ignorer.MatchesPathHow(p)
	if !ok || how == nil {
		return false, ""
	}
	return true, how.Line
}

// MatchesFile 报告文件是否被忽略
func (m *Matcher) MatchesFile(rel string) bool {
	ok, _ := m.Match(rel, false)
	return ok
}

// MatchesDir 报告目录是否被忽略
func (m *Matcher) MatchesDir(rel string) bool {
	ok, _ := m.Match(rel, true)
	return ok
}

// Filter 去掉 dir 下被忽略的目录项，返回新的切片
func (m *Matcher) Filter(dir string, entries []storage.Entry) []storage.Entry {
	out := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		if ok, _ := m.Match(path.Join(normalize(dir), e.Name), e.IsDir); ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// normalize 把路径统一成不带首尾斜杠的 slash 形式
func normalize(rel string) string {
	p := filepath.ToSlash(rel)
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}
