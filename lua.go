package rewind

const (
	luaPutRecords = `
		-- Atomically replace an archived history
		-- KEYS[1] = record list key
		-- KEYS[2] = record count key
		-- ARGV[1..N] = record data (JSON)
		-- Returns: number of records stored

		redis.call('DEL', KEYS[1])

		local chunkSize = 128
		local startIdx = 1

		while startIdx <= #ARGV do
			local endIdx = math.min(startIdx + chunkSize - 1, #ARGV)
			local chunk = {}
			for i = startIdx, endIdx do
				table.insert(chunk, ARGV[i])
			end
			redis.call('RPUSH', KEYS[1], unpack(chunk))
			startIdx = endIdx + 1
		end

		redis.call('SET', KEYS[2], #ARGV)
		return #ARGV
		`

	luaGetRecords = `
		-- Atomically read an archived history
		-- KEYS[1] = record list key
		-- KEYS[2] = record count key
		-- Returns: {0} if nothing was archived, or {1, records}

		local count = redis.call('GET', KEYS[2])
		if not count then
			return {0}
		end
		return {1, redis.call('LRANGE', KEYS[1], 0, -1)}
		`
)
