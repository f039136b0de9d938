// Package room 把 (用户A, 用户B, 商品) 映射为规范的会话房间号
package room

import "strings"

const sep = "_"

// ID 返回房间号：两个用户 id 按字典序排序后拼接，再拼上商品 id。
// 交换 userA 与 userB 结果不变。
func ID(userA, userB, product string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + sep + userB + sep + product
}

// Parse 拆出房间号里的两个参与者和商品；格式不对返回 ok=false
func Parse(id string) (userA, userB, product string, ok bool) {
	parts := strings.Split(id, sep)
	if len(parts) != 3 {
		return "", "", "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", "", "", false
		}
	}
	if parts[1] < parts[0] {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// HasMember 判断 user 是否是房间的参与者之一
func HasMember(id, user string) bool {
	a, b, _, ok := Parse(id)
	if !ok {
		return false
	}
	return user == a || user == b
}

// Counterparty 返回房间里另一个参与者
func Counterparty(id, user string) (string, bool) {
	a, b, _, ok := Parse(id)
	switch {
	case !ok:
		return "", false
	case user == a:
		return b, true
	case user == b:
		return a, true
	}
	return "", false
}
