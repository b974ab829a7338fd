package adapter

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"storefront/internal/service/order/domain"
)

// ConfigSource 是 nacos.Client 中读取和监听配置的部分
type ConfigSource interface {
	GetConfig(dataID string) (string, error)
	ListenConfig(dataID string, onChange func(content string)) error
	CancelListenConfig(dataID string) error
}

// NacosSettings 从 Nacos 配置中心读取结账设置并监听变更。
// 变更内容解析失败时保留上一份有效的设置。
type NacosSettings struct {
	source   ConfigSource
	dataID   string
	fallback SettingsDocument
	current  atomic.Pointer[domain.Pricing]
}

// NewNacosSettings 读取初始设置并开始监听。fallback 是本地配置，
// Nacos 中缺失的字段取 fallback 中的值。
func NewNacosSettings(source ConfigSource, dataID string, fallback SettingsDocument) (*NacosSettings, error) {
	initial, err := BuildPricing(fallback)
	if err != nil {
		return nil, fmt.Errorf("invalid local checkout settings: %w", err)
	}
	s := &NacosSettings{source: source, dataID: dataID, fallback: fallback}
	s.current.Store(&initial)

	content, err := source.GetConfig(dataID)
	if err != nil {
		log.Warn().Err(err).Str("data_id", dataID).Msg("Failed to load checkout settings from Nacos, using local settings")
	} else if err := s.apply(content); err != nil {
		log.Warn().Err(err).Str("data_id", dataID).Msg("Invalid checkout settings in Nacos, using local settings")
	}

	if err := source.ListenConfig(dataID, s.onChange); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *NacosSettings) onChange(content string) {
	if err := s.apply(content); err != nil {
		log.Error().Err(err).Str("data_id", s.dataID).Msg("Rejected checkout settings update, keeping previous settings")
		return
	}
	log.Info().Str("data_id", s.dataID).Msg("Checkout settings updated from Nacos")
}

func (s *NacosSettings) apply(content string) error {
	if content == "" {
		return nil
	}
	doc := s.fallback
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return fmt.Errorf("parse checkout settings: %w", err)
	}
	pricing, err := BuildPricing(doc)
	if err != nil {
		return err
	}
	s.current.Store(&pricing)
	return nil
}

func (s *NacosSettings) Pricing(context.Context) (domain.Pricing, error) {
	return *s.current.Load(), nil
}

// Close 停止监听配置变更
func (s *NacosSettings) Close() error {
	return s.source.CancelListenConfig(s.dataID)
}
