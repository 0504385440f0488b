package guardrails

import (
	"strings"
	"unicode"
)

// maxRepeat 连续重复字符被压缩到的长度；达到 maxRepeat+2 次才压缩
const maxRepeat = 3

// Sanitize 规范化查询文本：
// 空白统一为单个空格，删除控制字符，五次及以上的连续重复字符压缩为三个，去除首尾空白。
// 对自身输出幂等。
func Sanitize(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case r < 0x20 || r == 0x7F:
			return -1
		}
		return r
	}, query)

	collapsed := strings.Join(strings.Fields(cleaned), " ")
	return collapseRepeats(collapsed)
}

// collapseRepeats 将长度 >= 5 的同字符连续段替换为 3 个
func collapseRepeats(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		n := j - i
		if n >= maxRepeat+2 {
			n = maxRepeat
		}
		for k := 0; k < n; k++ {
			b.WriteRune(runes[i])
		}
		i = j
	}
	return b.String()
}
