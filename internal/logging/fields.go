package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供一次缓存请求的定位字段（命名空间 + 逻辑 key），供网关日志复用。
func RequestFields(requestID, namespace, key, method string) logrus.Fields {
	return logrus.Fields{
		"action":     "cache_request",
		"request_id": requestID,
		"namespace":  namespace,
		"key":        namespace + "/" + key,
		"method":     method,
	}
}

// StorageFields 描述当前使用的存储后端，启动与关闭日志共用。
func StorageFields(backend, location string) logrus.Fields {
	return logrus.Fields{
		"storage":  backend,
		"location": location,
	}
}
