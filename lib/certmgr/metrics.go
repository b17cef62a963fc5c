/*
 * Vaultkeeper
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package certmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type containerMetrics struct {
	issues           prometheus.Counter
	issueFailures    prometheus.Counter
	rotations        prometheus.Counter
	rotationFailures prometheus.Counter
	managed          prometheus.Gauge
}

func newContainerMetrics(r prometheus.Registerer) *containerMetrics {
	f := promauto.With(r)
	return &containerMetrics{
		issues: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_certmgr_issues_total",
			Help: "Number of first-time certificate issuances.",
		}),
		issueFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_certmgr_issue_failures_total",
			Help: "Number of failed first-time certificate issuances.",
		}),
		rotations: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_certmgr_rotations_total",
			Help: "Number of successful certificate rotations.",
		}),
		rotationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_certmgr_rotation_failures_total",
			Help: "Number of failed certificate rotations.",
		}),
		managed: f.NewGauge(prometheus.GaugeOpts{
			Name: "vaultkeeper_certmgr_managed_certificates",
			Help: "Number of certificates currently registered.",
		}),
	}
}
