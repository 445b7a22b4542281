package timeouts

import "time"

// Rewrite bounds a single meson rewrite run unless configured otherwise.
const Rewrite = 2 * time.Minute
