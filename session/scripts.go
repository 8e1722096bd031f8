package session

import "github.com/redis/go-redis/v9"

// claimIndexScript replaces the identity index only while it still holds the
// stale token observed by the caller (empty string = absent).
const claimIndexScript = `
local cur = redis.call("GET", KEYS[1])
if (not cur and ARGV[1] == "") or cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`

var claimIndexLua = redis.NewScript(claimIndexScript)

// moveIndexScript points the identity index at a rotated token. An absent
// index is recreated; an index owned by another token is left alone.
const moveIndexScript = `
local cur = redis.call("GET", KEYS[1])
if not cur or cur == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
  return 1
end
return 0
`

var moveIndexLua = redis.NewScript(moveIndexScript)

const expireIndexScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

var expireIndexLua = redis.NewScript(expireIndexScript)

const deleteIndexScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var deleteIndexLua = redis.NewScript(deleteIndexScript)
