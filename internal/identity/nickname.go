package identity

import "fmt"

// GenerateNickname returns the nickname for one attempt. A custom nickname
// is used as is when index is zero and gets a two-digit suffix otherwise,
// so batch members stay distinct.
func (g *Generator) GenerateNickname(custom string, index int) string {
	if custom != "" {
		if index > 0 {
			return fmt.Sprintf("%s_%02d", custom, index)
		}
		return custom
	}
	n := g.policy.NicknameSuffixLen
	if n <= 0 {
		n = DefaultPolicy().NicknameSuffixLen
	}
	return g.policy.NicknamePrefix + g.randomString(lowerAlnum, n)
}
