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

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type managerMetrics struct {
	logins             prometheus.Counter
	loginFailures      prometheus.Counter
	renewals           prometheus.Counter
	renewalFailures    prometheus.Counter
	revocations        prometheus.Counter
	revocationFailures prometheus.Counter
}

// newManagerMetrics builds the manager's counters. A nil registerer leaves
// them unregistered, which tests rely on.
func newManagerMetrics(r prometheus.Registerer) *managerMetrics {
	f := promauto.With(r)
	return &managerMetrics{
		logins: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_session_logins_total",
			Help: "Number of successful logins.",
		}),
		loginFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_session_login_failures_total",
			Help: "Number of failed logins.",
		}),
		renewals: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_session_renewals_total",
			Help: "Number of successful token renewals.",
		}),
		renewalFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_session_renewal_failures_total",
			Help: "Number of failed token renewals.",
		}),
		revocations: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_session_revocations_total",
			Help: "Number of successful token revocations.",
		}),
		revocationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vaultkeeper_session_revocation_failures_total",
			Help: "Number of failed token revocations.",
		}),
	}
}
