// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// parleyNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	parleyNamespace = "parley"

	// 以下为当前使用的通用标签名。
	stateLabelName     = "state"
	directionLabelName = "direction"
	reasonLabelName    = "reason"
)

var (
	// buckets 为请求耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [1 2 4 8 16 32 64 128 256 512 1024 2048 4096 8192 16384 32768 65536 1.31072e+05]
	buckets = prometheus.ExponentialBuckets(1, 2, 18)

	// fanoutBuckets 为群聊广播扇出数量的桶划分。
	fanoutBuckets = []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024}

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: parleyNamespace,
			Name:      "active_sessions",
			Help:      "number of live TCP sessions",
		})

	RegisteredUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: parleyNamespace,
			Name:      "registered_users",
			Help:      "number of sessions bound to a username",
		})

	SessionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: parleyNamespace,
			Name:      "sessions_by_state",
			Help:      "number of sessions in each chat state",
		}, []string{stateLabelName})

	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: parleyNamespace,
			Name:      "messages_total",
			Help:      "frames received from and delivered to clients",
		}, []string{directionLabelName})

	BroadcastFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: parleyNamespace,
			Name:      "broadcast_fanout",
			Help:      "number of recipients per group broadcast",
			Buckets:   fanoutBuckets,
		})

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: parleyNamespace,
			Name:      "dispatch_latency_ms",
			Help:      "time cost of handling a single inbound frame",
			Buckets:   buckets,
		})

	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: parleyNamespace,
			Name:      "send_failures_total",
			Help:      "frames dropped because a session could not accept them",
		}, []string{reasonLabelName})

	metricRegisterer prometheus.Registerer
)

// 指标标签取值，调用方统一使用这里的常量避免拼写分叉。
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	ReasonQueueFull    = "queue_full"
	ReasonSessionClose = "session_closed"
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在 init 函数中调用。
func Register(r prometheus.Registerer) {
	r.MustRegister(ActiveSessions)
	r.MustRegister(RegisteredUsers)
	r.MustRegister(SessionsByState)
	r.MustRegister(Messages)
	r.MustRegister(BroadcastFanout)
	r.MustRegister(DispatchLatency)
	r.MustRegister(SendFailures)
	metricRegisterer = r
}
