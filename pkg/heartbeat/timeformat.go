// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package heartbeat

import "time"

// TimeLayout is the fixed width wire format of the heartbeat Time field.
// It always renders 24 characters: YYYY-MM-DDTHH:MM:SS.SSSZ
const TimeLayout = "2006-01-02T15:04:05.000Z"

// timeLayoutLen is the only accepted length for a wire timestamp
const timeLayoutLen = len(TimeLayout)

// FormatTime renders t in UTC with millisecond precision.
// The zero time, and any time whose year does not fit in four digits, formats
// to the empty string so that it is omitted on the wire.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return ""
	}
	return t.Format(TimeLayout)
}

// ParseTime parses a wire timestamp. Anything that is not exactly 24
// characters, or does not match TimeLayout, yields the zero time.
// "0001-01-01T00:00:00.000Z" is the zero time itself and therefore reads as
// invalid as well.
func ParseTime(s string) time.Time {
	if len(s) != timeLayoutLen {
		return time.Time{}
	}

	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
