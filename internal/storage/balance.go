package storage

import (
	"strings"
	"unicode/utf8"
)

// shardWidth 是分片目录名取自哈希的字符数。
const shardWidth = 2

// BalanceKey 将逻辑 key "prefix/hash" 改写为物理 key "prefix/hh/hash"，
// hh 取末段（哈希本身）的前两个字符，用于把对象分散到多个虚拟目录，避免远端
// 扁平命名空间出现热点分区。该变换是纯函数：同一个逻辑 key 永远映射到同一个
// 物理 key。末段不足两个字符时整段作为分片目录。
// 按字符（rune）而非字节截取，非 ASCII 的 key 不会被切出非法 UTF-8。
func BalanceKey(key string) string {
	dir, hash := splitLast(key)
	shard := hash
	if utf8.RuneCountInString(hash) > shardWidth {
		shard = hash[:runePrefixLen(hash, shardWidth)]
	}
	if dir == "" {
		return shard + "/" + hash
	}
	return dir + "/" + shard + "/" + hash
}

func splitLast(key string) (dir, last string) {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return "", key
	}
	return key[:idx], key[idx+1:]
}

// runePrefixLen 返回 s 前 n 个字符所占的字节数。
func runePrefixLen(s string, n int) int {
	offset := 0
	for i := 0; i < n && offset < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
	}
	return offset
}
