package storage

import (
	"net"
	"net/http"
	"time"
)

// objectTransport 是访问对象存储的共享 transport，复用长连接并集中配置超时。
// 不设置整体请求超时：大对象的分块上传可能持续很久，取消由请求 ctx 负责。
var objectTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 60 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// newObjectTransport 为每个客户端克隆一份 transport，避免共享连接池状态。
func newObjectTransport() *http.Transport {
	return objectTransport.Clone()
}
