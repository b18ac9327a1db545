package etcd

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// KeyPrefix 是所有服务实例键的公共前缀。
const KeyPrefix = "/services/"

// ServiceDiscovery 把服务实例登记到 etcd，租约过期后实例自动摘除。
type ServiceDiscovery struct {
	cli       *clientv3.Client // etcd client
	endpoints []string
	log       *logger.Logger
}

// NewServiceDiscovery creates a new ServiceDiscovery.
func NewServiceDiscovery(cfg config.EtcdConfig, log *logger.Logger) (*ServiceDiscovery, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints are empty")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("连接 etcd 失败: %w", err)
	}
	return &ServiceDiscovery{cli: cli, endpoints: cfg.Endpoints, log: log}, nil
}

// ServiceKey 返回一个实例在 etcd 中的键。
func ServiceKey(serviceName, addr string) string {
	return KeyPrefix + serviceName + "/" + addr
}

// Register 以 ttl 秒的租约登记实例并持续续约。返回的 stop 撤销租约，可重复调用。
func (s *ServiceDiscovery) Register(ctx context.Context, serviceName, addr string, ttl int64) (stop func(), err error) {
	leaseResp, err := s.cli.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("申请租约失败: %w", err)
	}

	key := ServiceKey(serviceName, addr)
	if _, err = s.cli.Put(ctx, key, addr, clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, fmt.Errorf("写入服务地址失败: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	keepAliveCh, err := s.cli.KeepAlive(kaCtx, leaseResp.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("续约失败: %w", err)
	}

	log := s.log.WithField("key", key)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range keepAliveCh {
		}
		if kaCtx.Err() == nil {
			// 租约过期或被撤销。
			log.Warn("etcd 租约已失效，服务实例已被摘除")
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
			revokeCtx, cancelRevoke := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancelRevoke()
			if _, err := s.cli.Revoke(revokeCtx, leaseResp.ID); err != nil {
				log.WithError(err).Warn("撤销 etcd 租约失败，等待其自然过期")
			}
		})
	}, nil
}

// Discover 返回某服务当前登记的全部地址。
func (s *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]string, error) {
	resp, err := s.cli.Get(ctx, KeyPrefix+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(resp.Kvs))
	for _, ev := range resp.Kvs {
		addrs = append(addrs, string(ev.Value))
	}
	return addrs, nil
}

// HealthCheck 查询第一个可达节点的状态。
func (s *ServiceDiscovery) HealthCheck(ctx context.Context) error {
	var errs []string
	for _, ep := range s.endpoints {
		_, err := s.cli.Status(ctx, ep)
		if err == nil {
			return nil
		}
		errs = append(errs, ep+": "+err.Error())
	}
	return fmt.Errorf("etcd 不可用: %s", strings.Join(errs, "; "))
}

// Close closes the etcd client.
func (s *ServiceDiscovery) Close() error {
	return s.cli.Close()
}
