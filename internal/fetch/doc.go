// Package fetch retrieves catalog listings. It layers an ordered set of
// retrieval strategies (plain HTTP, headless browser) behind a sticky
// selector that retries transient failures and falls through on blocks.
package fetch
