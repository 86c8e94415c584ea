package delivery

import "fmt"

// GuildChannelsKey is the Redis set holding the live channel ids of a guild.
func GuildChannelsKey(guildID int64) string {
	return fmt.Sprintf("guild:%d:channels", guildID)
}

// JobStatusKey holds the latest status text of a job.
func JobStatusKey(jobID int64) string {
	return fmt.Sprintf("job:%d:status", jobID)
}
