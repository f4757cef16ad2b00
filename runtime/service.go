// Copyright 2026 The Neutrino Authors
// This file is part of Neutrino.
//
// Neutrino is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Neutrino is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Neutrino. If not, see <http://www.gnu.org/licenses/>.

package runtime

import (
	"github.com/pkg/errors"

	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/service"
	"github.com/neutrino-rt/neutrino/value"
)

// ServiceDescriptor is the config-level alias embedders list services
// under.
type ServiceDescriptor = service.Descriptor

// AddService binds a native service's methods into the builtin
// methodspace: for each selector, a method guarded on (subject Eq the
// service's namespace token, selector Eq) whose body is a bound
// trampoline returning a promise. Services must be added while the
// builtin methodspace is still mutable, i.e. from the embedder's
// configuration phase before the roots freeze.
func (rt *Runtime) AddService(desc service.Descriptor) error {
	rt.checkThread()
	nsToken, cond := rt.InternString(desc.Namespace)
	if cond.IsCondition() {
		return errors.Errorf("interning service namespace: %s", cond)
	}
	binder := &service.Binder{PromiseSpecies: rt.Roots.PromiseSpecies, Log: rt.Log}

	subjectGuard, cond := rt.NewGuard(dispatch.GuardEq, nsToken)
	if cond.IsCondition() {
		return errors.Errorf("allocating service subject guard: %s", cond)
	}
	for name, cb := range desc.Methods {
		selector, cond := rt.InternString(name)
		if cond.IsCondition() {
			return errors.Errorf("interning service selector %q: %s", name, cond)
		}
		sig, cond := rt.NewOperatorSignature(subjectGuard, selector, nil, true)
		if cond.IsCondition() {
			return errors.Errorf("building service signature %q: %s", name, cond)
		}
		if err := rt.AddBuiltinMethod(sig, 0, 2, binder.Bind(name, cb)); err != nil {
			return errors.Wrapf(err, "binding service method %q", name)
		}
	}

	return nil
}

// ServiceToken returns the subject value a program invokes a service's
// selectors on — the interned namespace token — or Nothing if no such
// service is installed.
func (rt *Runtime) ServiceToken(namespace string) value.Value {
	if box, ok := rt.interned[namespace]; ok {
		return box.v
	}
	return value.Nothing
}
