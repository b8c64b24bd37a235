// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package social

import "errors"

func isNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func isConflict(err error) bool  { return errors.Is(err, ErrConflict) }
func isForbidden(err error) bool { return errors.Is(err, ErrForbidden) }
