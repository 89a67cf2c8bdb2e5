// Package statcard models the stat card shown on analytics dashboards.
//
// A card is described by [Props] and resolved into exactly one [State]:
//
//   - [Failed] when an error is present, showing only the extracted message
//   - [Loading] when data is still loading
//   - [Ready] otherwise
//
// [Present] flattens a state into a [View] of display strings and [Render]
// writes it as an HTML fragment. [ErrorMessage] implements the message
// extraction used for failed cards.
package statcard
